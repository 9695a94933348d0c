package zaplog

import "testing"

func TestNewDoesNotPanic(t *testing.T) {
	logger := New(Options{Component: "test", Debug: true})
	logger.Info("hello")
	logger.Debug("world")
}

func TestNewJSONDoesNotPanic(t *testing.T) {
	logger := New(Options{Component: "test", JSON: true})
	logger.Info("hello")
}

func TestNop(t *testing.T) {
	Nop().Info("discarded")
}
