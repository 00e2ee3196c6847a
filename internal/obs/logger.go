package obs

import (
	"abquant/internal/event"
	"abquant/internal/model"
	"abquant/internal/model/enum"

	"github.com/yanun0323/logs"
)

// LogPrinter writes log events at or above its level to the process log.
type LogPrinter struct {
	level enum.LogLevel
}

func NewLogPrinter(level enum.LogLevel) *LogPrinter {
	if !level.IsAvailable() {
		level = enum.LogLevelInfo
	}
	return &LogPrinter{level: level}
}

func (p *LogPrinter) HandleEvent(e event.Event) error {
	l, ok := event.PayloadOf[model.Log](e)
	if !ok || l.Level < p.level {
		return nil
	}

	source := l.GatewayName
	if source == "" {
		source = "engine"
	}
	switch l.Level {
	case enum.LogLevelError:
		logs.Errorf("[%s] %s", source, l.Msg)
	case enum.LogLevelWarning:
		logs.Warnf("[%s] %s", source, l.Msg)
	case enum.LogLevelDebug:
		logs.Debugf("[%s] %s", source, l.Msg)
	default:
		logs.Infof("[%s] %s", source, l.Msg)
	}
	return nil
}
