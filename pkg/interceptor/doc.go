// Package interceptor exposes the mode-agnostic Interceptor and Handler
// APIs.
//
// Local runs the engine in-process and captures traffic as an
// http.RoundTripper. Remote keeps no handler state of its own: every call
// is a round trip to an interceptor server over a WebSocket, and Go
// callbacks (predicates, computed delays, response factories) are invoked
// by the server over the same connection.
//
// Test code depends only on the interfaces:
//
//	func TestCheckout(t *testing.T) {
//	    ic, _ := interceptor.NewLocal("https://api.example.com", interceptor.WithSaveRequests(true))
//	    _ = ic.Start(ctx)
//	    defer ic.Stop(ctx)
//
//	    ic.Post("/orders").
//	        With(mock.JSONBody(map[string]any{"sku": "A1"})).
//	        Times(1).
//	        Respond(mock.JSONResponse(201, map[string]string{"id": "o-1"}))
//
//	    runCheckout(ic.Client())
//
//	    if err := ic.CheckTimes(ctx); err != nil {
//	        t.Fatal(err)
//	    }
//	}
//
// Builder calls never return errors. The first failure is kept, reported by
// Handler.Err and returned again by CheckTimes. In remote mode each builder
// call blocks until the server has applied it, so calls made in sequence are
// applied in that order.
package interceptor
