package sink

// Noop discards every observation. Used when recording is disabled and
// as the default in engine tests.
type Noop struct{}

func (Noop) OnNewOrder(Fill, string)               {}
func (Noop) OnNewBuyPosition(Position, string)     {}
func (Noop) OnNewSellPosition(Position, string)    {}
func (Noop) OnFilledBuyPosition(Position, string)  {}
func (Noop) OnFilledSellPosition(Position, string) {}
func (Noop) Close() error                          { return nil }
