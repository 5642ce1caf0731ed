package ports

type Observability interface {
	LogInfo(msg string, fields ...Field)
	LogWarn(msg string, err error, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	LogCritical(msg string, err error, fields ...Field)

	// Labels are label values in the order the metric declares them.
	IncCounter(name string, v float64, labels ...string)
	ObserveLatency(name string, seconds float64, labels ...string)

	SetGauge(name string, v float64, labels ...string)

	RecordDeadLetter(e DeadLetterEntry, err error)
}

type Field struct {
	Key   string
	Value any
}
