package log

// Logger is a prefix-scoped view of the global logger, handed to
// components at construction so ownership of log output stays explicit.
type Logger interface {
	Panicf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Debugf(format string, v ...interface{})
	Log(err error, format string, v ...interface{})
}

type logger struct {
	prefix string
}

func WithLogger(prefix string) Logger {
	return &logger{
		prefix: prefix,
	}
}

func (l *logger) Panicf(format string, v ...interface{}) {
	sugar.Panicf(l.prefix+format, v...)
}

func (l *logger) Errorf(format string, v ...interface{}) {
	sugar.Errorf(l.prefix+format, v...)
}

func (l *logger) Warnf(format string, v ...interface{}) {
	sugar.Warnf(l.prefix+format, v...)
}

func (l *logger) Infof(format string, v ...interface{}) {
	sugar.Infof(l.prefix+format, v...)
}

func (l *logger) Debugf(format string, v ...interface{}) {
	sugar.Debugf(l.prefix+format, v...)
}

func (l *logger) Log(err error, format string, v ...interface{}) {
	if err == nil {
		l.Infof(format, v...)
	} else {
		l.Errorf(format, v...)
	}
}
