package privacy

// ScrubbedError carries a delivery or transport error whose text may hold credentials.
// Error reports the scrubbed text, errors.Is and errors.As still reach the cause.
type ScrubbedError struct {
	cause error
	msg   string
}

func (e *ScrubbedError) Error() string { return e.msg }

func (e *ScrubbedError) Unwrap() error { return e.cause }

// WrapError returns err with ScrubMessage applied to its text, nil stays nil.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &ScrubbedError{cause: err, msg: ScrubMessage(err.Error())}
}
