package logging

// Common field names for structured logging
const (
	FieldComponent    = "component"
	FieldRequestID    = "request_id"
	FieldMethod       = "method"
	FieldPath         = "path"
	FieldStatusCode   = "status_code"
	FieldDuration     = "duration_ms"
	FieldBytes        = "bytes"
	FieldError        = "error"
	FieldOperation    = "operation"
	FieldDefinitionID = "definition_id"
	FieldEntryID      = "entry_id"
	FieldKind         = "kind"
	FieldPeriod       = "period"
	FieldChannel      = "channel"
	FieldAmount       = "amount"
	FieldCreated      = "created"
	FieldSkipped      = "skipped"
)

// Components
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentGenerator = "generator"
	ComponentLedger    = "ledger"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentScheduler = "scheduler"
	ComponentSalary    = "salary"
	ComponentExpense   = "expense"
)

// Operations
const (
	OpGenerate    = "generate"
	OpMarkPaid    = "mark_paid"
	OpEditPending = "edit_pending"
	OpDelete      = "delete"
	OpAutoPay     = "autopay"
	OpMigrate     = "migrate"
	OpStartup     = "startup"
	OpShutdown    = "shutdown"
)
