package events

// Local is a machine-local event. Generation identifies the resource that
// produced it so events from released resources can be ignored.
type Local struct {
	Base
	Generation uint64
	Err        error
	Text       string
	Data       []byte
}

func NewLocal(kind Kind, generation uint64) Local {
	return Local{Base: NewBase(kind), Generation: generation}
}

func (l Local) WithErr(err error) Local {
	l.Err = err
	return l
}

func (l Local) WithText(text string) Local {
	l.Text = text
	return l
}

func (l Local) WithData(data []byte) Local {
	l.Data = data
	return l
}
