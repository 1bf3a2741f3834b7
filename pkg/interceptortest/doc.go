// Package interceptortest provides helpers for using interceptors in Go
// tests.
//
// Interceptors created here are started immediately and stopped when the
// test completes. At cleanup every handler's times expectation is checked
// and failures are reported on the test.
//
// # Local Interceptors
//
// A local interceptor runs in the test process. Requests sent through its
// client to URLs under the base URL never reach the network:
//
//	func TestCreateUser(t *testing.T) {
//	    ic := interceptortest.NewLocal(t, "https://api.example.test")
//
//	    ic.Post("/users").
//	        With(mock.JSONBody(map[string]any{"name": "ada"})).
//	        Times(1).
//	        Respond(mock.JSONResponse(201, map[string]any{"id": 7}))
//
//	    client := NewAPIClient(ic.BaseURL(), ic.Client())
//	    // ...
//	}
//
// # Remote Interceptors
//
// NewRemote starts an in-process interceptor server and opens a session on
// it. Connect opens a session on a server that is already running, and
// FromEnv picks between the two using INTERCEPTD_SERVER_URL, so tests run
// unchanged under "interceptd exec" or "interceptd serve --on-ready":
//
//	ic := interceptortest.FromEnv(t)
//	ic.Get("/users/:id").Respond(mock.JSONResponse(200, user))
//	resp, err := ic.Client().Get(ic.URL("/users/7"))
//
// # Assertions
//
// Handlers created with request saving enabled (the default here) expose
// the requests they claimed:
//
//	h := ic.Post("/events").Respond(mock.Response{Status: 202})
//	// ... exercise the code under test ...
//	interceptortest.AssertCalledTimes(t, h, 1)
//	req := interceptortest.Requests(t, h)[0]
//	req.AssertHeader(t, "Content-Type", "application/json")
//	req.AssertJSONField(t, "kind", "signup")
package interceptortest
