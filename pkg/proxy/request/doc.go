// Package request translates an inbound HTTP request into an outbound call.
//
// A Descriptor captures the inbound facts once and carries a mutable
// overlay (target scheme, host, path, headers, query, form fields, cookies,
// timeout) that filters rewrite before the downstream call is made:
//
//	d, err := request.New(request.Params{
//		UniqueID: id,
//		Host:     "api.internal:8080",
//		URI:      "/users/42?verbose=1",
//		Method:   http.MethodGet,
//		Headers:  header,
//		Payload:  request.NewPayload(body, nil),
//	})
//	d.SetModifyHost("users.svc:9000")
//	d.SetHeader("X-Gateway", "hikari")
//	out, err := d.Build()
//	req, err := out.NewHTTPRequest(ctx)
//
// Build may be called repeatedly; every call reflects the current overlay
// and none of them change the inbound facts.
package request
