package ice

import "github.com/pion/randutil"

const (
	runesAlpha = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// Minimum lengths for ICE ufrag and password are 4 and 22 characters.
	ufragLen = 16
	pwdLen   = 32
)

func generateCredentials() (ufrag, pwd string, err error) {
	ufrag, err = randutil.GenerateCryptoRandomString(ufragLen, runesAlpha)
	if err != nil {
		return "", "", err
	}
	pwd, err = randutil.GenerateCryptoRandomString(pwdLen, runesAlpha)
	if err != nil {
		return "", "", err
	}
	return ufrag, pwd, nil
}
