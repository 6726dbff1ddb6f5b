package types

// ------------------------
// Serial
// ------------------------

type Parity uint8

const (
	ParityNone Parity = iota
	ParityReserved
	ParityEven
	ParityOdd
)

func (p Parity) String() string {
	switch p {
	case ParityEven:
		return "even"
	case ParityOdd:
		return "odd"
	default:
		return "none"
	}
}

// Direction selects which halves of a serial port are enabled.
type Direction uint8

const (
	DirTRx Direction = iota
	DirRx
	DirTx
)

func (d Direction) String() string {
	switch d {
	case DirRx:
		return "rx"
	case DirTx:
		return "tx"
	default:
		return "trx"
	}
}
