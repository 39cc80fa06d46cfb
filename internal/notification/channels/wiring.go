package channels

import (
	"dealerdesk_backend/internal/notification/dispatch"
	"dealerdesk_backend/internal/notification/sse"
	"dealerdesk_backend/platform/config"
)

// Config is everything needed to build the channel sinks.
type Config interface {
	config.EmailConfig
	config.SMSConfig
	config.DispatchConfig
}

// DispatchOptions wires every configured sink into a dispatcher. Channels
// without configuration get no sink and are skipped at send time.
func DispatchOptions(cfg Config, stream *sse.Service) []dispatch.Option {
	opts := []dispatch.Option{
		dispatch.WithWorkers(cfg.GetDispatchWorkers()),
		dispatch.WithSendTimeout(cfg.GetDispatchSendTimeout()),
	}
	if push := NewPushSink(stream); push != nil {
		opts = append(opts, dispatch.WithSink(dispatch.ChannelPush, push))
	}
	if email := NewEmailSink(cfg); email != nil {
		opts = append(opts, dispatch.WithSink(dispatch.ChannelEmail, email))
	}
	if sms := NewSMSSink(cfg); sms != nil {
		opts = append(opts, dispatch.WithSink(dispatch.ChannelSMS, sms))
	}
	return opts
}
