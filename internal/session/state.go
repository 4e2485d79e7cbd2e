package session

// Kind identifies which variant a State is.
type Kind int

const (
	KindPending Kind = iota
	KindGranted
	KindDenied
)

func (k Kind) String() string {
	switch k {
	case KindPending:
		return "pending"
	case KindGranted:
		return "granted"
	case KindDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// State is one of Pending, Granted or Denied. The interface is sealed.
type State interface {
	Kind() Kind
	isState()
}

// Pending means the provider has not answered yet. Nothing is rendered in this state.
type Pending struct{}

// Granted carries the signed-in user's profile and access token. Token is never empty.
type Granted struct {
	Profile *UserProfile
	Token   string
}

// Denied means there is no signed-in user.
type Denied struct{}

func (Pending) Kind() Kind { return KindPending }
func (Granted) Kind() Kind { return KindGranted }
func (Denied) Kind() Kind  { return KindDenied }

func (Pending) isState() {}
func (Granted) isState() {}
func (Denied) isState()  {}

// UserProfile is the provider's record of the signed-in user. Views read it; nothing mutates it.
type UserProfile struct {
	Subject string `json:"sub"`
	Name    string `json:"name"`
	Email   string `json:"email"`
}

// DisplayName returns Name, falling back to Email then Subject.
func (p *UserProfile) DisplayName() string {
	switch {
	case p == nil:
		return ""
	case p.Name != "":
		return p.Name
	case p.Email != "":
		return p.Email
	default:
		return p.Subject
	}
}
