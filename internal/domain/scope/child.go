package scope

// CreateChildContext derives a new, initialized context for an outbound call.
// The child keeps the correlation id, tenant, project, baggage (copied) and
// cancellation signal; its causation id is this context's operation id and it
// receives a fresh operation id. An empty nodeID keeps the parent's node.
func (c *Context) CreateChildContext(nodeID string) (*Context, error) {
	const op = "CreateChildContext"
	if err := c.check(op); err != nil {
		return nil, err
	}
	return c.derive(op, nodeID, c.operationID)
}

// CreateChildContextCausedBy is CreateChildContext with an explicit causation
// id, used when a tracked unit of work inside this hop makes the call.
func (c *Context) CreateChildContextCausedBy(nodeID, causationID string) (*Context, error) {
	const op = "CreateChildContextCausedBy"
	if err := c.check(op); err != nil {
		return nil, err
	}
	if isBlank(causationID) {
		return nil, required(op, "causation_id")
	}
	return c.derive(op, nodeID, causationID)
}

func (c *Context) derive(op, nodeID, causationID string) (*Context, error) {
	ident := c.identity
	if nodeID != "" {
		if isBlank(nodeID) {
			return nil, required(op, "node_id")
		}
		ident.NodeID = nodeID
	}

	child := &Context{
		identity: ident,
		clock:    c.clock,
		ids:      c.ids,
	}
	err := child.Initialize(c.correlationID,
		WithCausation(causationID),
		WithTenant(c.tenantID),
		WithProject(c.projectID),
		WithBaggage(c.baggage),
		WithCancellation(c.cancellation),
	)
	if err != nil {
		return nil, err
	}
	return child, nil
}
