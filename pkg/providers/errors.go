package providers

import "github.com/pkg/errors"

var (
	// ErrAuthentication means the provider rejected the credentials.
	ErrAuthentication = errors.New("authentication failed")

	// ErrProviderNotFound means the provider endpoint, deployment or model does not exist.
	ErrProviderNotFound = errors.New("provider resource not found")

	// ErrConnectivity means the provider could not be reached.
	ErrConnectivity = errors.New("provider unreachable")

	ErrUnsupportedModel = errors.New("unsupported model")

	// ErrUninitializedBinding is returned when a chat handle is used before a
	// successful SetAPIKey.
	ErrUninitializedBinding = errors.New("binding not initialized")
)

// IsSoftFailure reports whether SetAPIKey should absorb err into a false result.
func IsSoftFailure(err error) bool {
	return errors.Is(err, ErrAuthentication) || errors.Is(err, ErrUnsupportedModel)
}

// ClassifyHTTPStatus maps a provider HTTP status to one of the sentinel errors.
// Statuses that have no sentinel return nil.
func ClassifyHTTPStatus(status int) error {
	switch status {
	case 401, 403:
		return ErrAuthentication
	case 404:
		return ErrProviderNotFound
	default:
		return nil
	}
}
