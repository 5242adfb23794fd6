package gate

// Decision is the outcome of running one request through the gate.
type Decision struct {
	// Exempt is set when the path bypassed authentication. Allow is also true.
	Exempt bool
	Allow  bool
	// Headers holds the identity headers to set on the forwarded request.
	Headers map[string]string
	// Reason is the internal denial cause. Never send it to the caller.
	Reason error
}

func exempt() *Decision {
	return &Decision{Exempt: true, Allow: true}
}

func deny(reason error) *Decision {
	return &Decision{Allow: false, Reason: reason}
}

func allow(headers map[string]string) *Decision {
	return &Decision{Allow: true, Headers: headers}
}
