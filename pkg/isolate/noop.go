package isolate

// NoOp prepares roots like the real isolator but never confines the process.
type NoOp struct{}

func NewNoOp() *NoOp {
	return &NoOp{}
}

func (n *NoOp) Prepare(root string) error {
	return Prepare(root)
}

func (n *NoOp) Confine(root string) error {
	return checkPrepared(root)
}

func (n *NoOp) IsolatePidNamespace() error {
	return nil
}
