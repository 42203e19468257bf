package core

// Logger is any service that can report events.
// expected args fmt: error, map[string]interface{}, Person
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Person identifies whoever triggered a logged event.
type Person struct {
	ID   string
	Name string
}
