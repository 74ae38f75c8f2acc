package domain

// SubjectType differentiates agent tokens from visitor identities.
type SubjectType string

const (
	SubjectTypeAgent   SubjectType = "AGENT"
	SubjectTypeVisitor SubjectType = "VISITOR"
)
