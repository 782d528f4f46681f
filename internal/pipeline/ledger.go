package pipeline

import "github.com/puzpuzpuz/xsync/v3"

type ledgerKey struct {
	ack Acknowledger
	tag uint64
}

// ledger holds the delivery tags that are enqueued but not yet resolved.
type ledger struct {
	open *xsync.MapOf[ledgerKey, struct{}]
}

func newLedger() *ledger {
	return &ledger{open: xsync.NewMapOf[ledgerKey, struct{}]()}
}

// register reports false if the tag is already awaiting resolution.
func (l *ledger) register(ack Acknowledger, tag uint64) bool {
	_, loaded := l.open.LoadOrStore(ledgerKey{ack: ack, tag: tag}, struct{}{})
	return !loaded
}

// settle reports false if the tag was never registered or was already settled.
func (l *ledger) settle(ack Acknowledger, tag uint64) bool {
	_, loaded := l.open.LoadAndDelete(ledgerKey{ack: ack, tag: tag})
	return loaded
}

func (l *ledger) size() int {
	return l.open.Size()
}
