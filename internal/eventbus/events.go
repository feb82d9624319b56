package eventbus

// Engine event types.
const (
	ForecastRefreshed   = "forecast.refreshed"
	ForecastFetchFailed = "forecast.fetch_failed"
	SubscribersReplaced = "subscribers.replaced"
	BroadcastFinished   = "broadcast.finished"
	BroadcastAborted    = "broadcast.aborted"
	ReplySent           = "reply.sent"
)
