package middlewares

const (
	CtxRequestID = "request_id"
	ctxSubject   = "auth.subject"
	ctxRole      = "auth.role"
)
