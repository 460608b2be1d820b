package logger

import (
	"github.com/stretchr/testify/mock"
)

// MockLogger is a testify mock of Logger.
//
// Logging methods record the message and the key/value slice, e.g.
//
//	l.On("Error", "server error", mock.Anything).Return()
type MockLogger struct {
	mock.Mock
}

var _ Logger = (*MockLogger)(nil)

func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

// AcceptAll makes the mock accept any logging call, with Level returning level and With returning
// the mock itself. Recorded calls can still be checked with AssertCalled.
func (m *MockLogger) AcceptAll(level LogLevel) *MockLogger {
	m.On("Level").Return(level).Maybe()
	m.On("SetLevel", mock.Anything).Return().Maybe()
	m.On("With", mock.Anything).Return(m).Maybe()
	for _, method := range []string{"Debug", "Info", "Warn", "Error", "Fatal"} {
		m.On(method, mock.Anything, mock.Anything).Return().Maybe()
	}

	return m
}

// Messages returns the messages logged with method, in call order.
func (m *MockLogger) Messages(method string) []string {
	var msgs []string
	for _, call := range m.Calls {
		if call.Method == method && len(call.Arguments) > 0 {
			if msg, ok := call.Arguments.Get(0).(string); ok {
				msgs = append(msgs, msg)
			}
		}
	}

	return msgs
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Info(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Warn(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Error(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Fatal(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) SetLevel(level LogLevel) {
	m.Called(level)
}

func (m *MockLogger) Level() LogLevel {
	args := m.Called()
	return args.Get(0).(LogLevel)
}

func (m *MockLogger) With(keyValues ...any) Logger {
	args := m.Called(keyValues)
	return args.Get(0).(Logger)
}
