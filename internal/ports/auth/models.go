package auth

// Claims representa la información extraída del token.
type Claims struct {
	UserID   string
	Email    string
	TenantID string
	// Role es informativo (doctor, nurse, patient...). La autorización sobre
	// datos de pacientes la decide el facade, no el rol.
	Role string
}
