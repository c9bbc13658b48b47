// Package evolution is a client for the Evolution WhatsApp HTTP API.
//
// Every call targets one Instance (API host, API key and instance name) and
// posts JSON to message/sendText, message/sendButtons or message/sendMedia
// with the key in the apikey header:
//
//	client := evolution.NewFromConfig(cfg)
//	res, err := client.SendText(ctx, evolution.Instance{
//	    Host: "https://evo.example.com", APIKey: key, Name: "main",
//	}, "+5511988887777", "Aula hoje às 19h")
//
// Failures wrap one of two sentinels. ErrUnavailable covers network errors,
// timeouts, 5xx and throttling responses and an open circuit breaker.
// ErrRejected covers any other non-2xx status and 2xx bodies that carry an
// "error" key or "status":"error". The client never retries; callers schedule
// retries themselves.
package evolution
