// fuelops moves aging fuel-operations records out of the live tables into
// per-collection archive tables on a monthly schedule.
//
// Usage:
//
//	# Start the admin API and the monthly scheduler
//	fuelops serve
//
//	# Preview what a run would archive
//	fuelops archive --dry-run
//
//	# Archive two collections now, keeping 3 months
//	fuelops archive --collections trip_fuel_records,delivery_orders --months 3
//
//	# Bring January's archived audit logs back
//	fuelops restore --collection audit_logs --from 2026-01-01 --to 2026-01-31
//
//	# Show live and archived counts
//	fuelops stats
package main

func main() {
	Execute()
}
