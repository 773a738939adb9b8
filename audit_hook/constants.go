package audithook

// Action constants for audit events.
const (
	// Customer actions
	ActionCustomerCreated = "customer.created"

	// Credit actions
	ActionCreditPurchased = "credit.purchased"

	// Debit actions
	ActionDebitCompleted = "debit.completed"
	ActionDebitRejected  = "debit.rejected"

	// Appointment actions
	ActionAppointmentScheduled = "appointment.scheduled"
)

// Resource constants for audit events.
const (
	ResourceCustomer    = "customer"
	ResourceCreditLot   = "credit_lot"
	ResourceAppointment = "appointment"
)

// Category constants for audit events.
const (
	CategoryCustomer   = "customer"
	CategoryBilling    = "billing"
	CategoryScheduling = "scheduling"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
