package types

// Permissions is the access level a transaction asks a page with
type Permissions int32

const (
	READ_ONLY Permissions = iota
	READ_WRITE
)

func (perm Permissions) String() string {
	switch perm {
	case READ_ONLY:
		return "READ_ONLY"
	case READ_WRITE:
		return "READ_WRITE"
	}
	return "UNKNOWN"
}
