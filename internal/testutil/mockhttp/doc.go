// Package mockhttp builds scripted HTTP servers for exercising the account
// and pod clients in tests.
//
// Steps run in registration order; the first one that reports it handled
// the request wins. Guards such as RequireBasicAuth and Capture inspect the
// request and pass it on.
//
//	server, client := mockhttp.New().
//		JSON("/.account/", map[string]any{"controls": map[string]any{
//			"password": map[string]string{"login": mockhttp.Base + "/login"},
//		}}).
//		RouteJSON(http.MethodPost, "/login", http.StatusOK, map[string]string{"authorization": "t"}).
//		Build()
//	defer server.Close()
//
// JSON bodies may embed Base, which is replaced with the server's own URL so
// discovery documents can point back at the mock.
package mockhttp
