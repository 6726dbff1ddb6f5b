package types

// Platform holds the board-wide properties of the directory.
type Platform struct {
	Clock  uint64 // core clock (Hz)
	Memory Memory
	CPUs   []CPU
}

type Memory struct {
	Start uintptr
	Size  uintptr
}

type CPU struct {
	ID   uint
	Name string
}

func (p Platform) Clone() Platform {
	if p.CPUs != nil {
		p.CPUs = append([]CPU(nil), p.CPUs...)
	}
	return p
}

// HasCore reports whether core index i is described by the platform.
func (p *Platform) HasCore(i int) bool {
	if p == nil || i < 0 {
		return false
	}
	for _, c := range p.CPUs {
		if int(c.ID) == i {
			return true
		}
	}
	return false
}
