package feed

// controlMsg is the auth/subscribe frame written to the vendor.
type controlMsg struct {
	Action string `json:"action"`
	Params string `json:"params"`
}

// eventHeader extracts the event type without a full parse.
type eventHeader struct {
	Ev string `json:"ev"`
}

// quoteWire is an option NBBO update.
type quoteWire struct {
	Ev  string   `json:"ev"`
	Sym string   `json:"sym"`
	Bid *float64 `json:"bp"`
	Ask *float64 `json:"ap"`
	T   int64    `json:"t"`
}

// indexWire is an underlying index value update.
type indexWire struct {
	Ev  string  `json:"ev"`
	Sym string  `json:"sym"`
	Val float64 `json:"val"`
	T   int64   `json:"t"`
}
