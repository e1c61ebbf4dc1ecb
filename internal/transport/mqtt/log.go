package mqtt

import (
	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// printer adapts a pair of zap functions to paho.Logger.
type printer struct {
	println func(args ...any)
	printf  func(template string, args ...any)
}

// Println implements paho.Logger.
func (p printer) Println(v ...any) {
	p.println(v...)
}

// Printf implements paho.Logger.
func (p printer) Printf(format string, v ...any) {
	p.printf(format, v...)
}

// bridge sends paho's library logs to l: critical and error output at error
// level, everything else at debug level. paho warns about routine events such
// as its message store being wiped on every connect.
func bridge(l *zap.SugaredLogger) {
	l = l.Named("paho")

	paho.CRITICAL = printer{println: l.Errorln, printf: l.Errorf}
	paho.ERROR = printer{println: l.Errorln, printf: l.Errorf}
	paho.WARN = printer{println: l.Debugln, printf: l.Debugf}
	paho.DEBUG = printer{println: l.Debugln, printf: l.Debugf}
}
