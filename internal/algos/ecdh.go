package algos

import (
	"crypto/ecdh"
	"crypto/elliptic"
	"math/rand/v2"

	"code.vaulink.org/golang/internal/utils"
)

const (
	CURVE_X25519 = "X25519"
	CURVE_P256   = "P256"
	CURVE_P384   = "P384"
	CURVE_P521   = "P521"
)

// Curve embeds ecdh.Curve and adds methods that simplify usage.
type Curve struct {
	ecdh.Curve
	elliptic    elliptic.Curve // nil for curves that can not carry ECDSA certificate keys
	name        string
	privkeySize int
	pubkeySize  int
	dhsecSize   int
}

// Name returns Name of Curve
func (self Curve) Name() string {
	return self.name
}

// Elliptic returns the elliptic.Curve used for ECDSA keys on this Curve.
// It returns nil for Montgomery curves.
func (self Curve) Elliptic() elliptic.Curve {
	return self.elliptic
}

// PrivateKeyLen returns byte length of Curve PrivateKey
func (self Curve) PrivateKeyLen() int {
	return self.privkeySize
}

// PublicKeyLen returns byte length of uncompressed form of Curve PublicKey
func (self Curve) PublicKeyLen() int {
	return self.pubkeySize
}

// DHLen returns byte length of Diffie-Hellmann shared secret
func (self Curve) DHLen() int {
	return self.dhsecSize
}

func (self *Curve) init() error {
	if nil == self || nil == self.Curve {
		return newError("can not initialize nil curve")
	}

	// rnd is just used to determine Curve outputs size, hence it does not need to be crypto rand.Reader
	rnd := rand.NewChaCha8([32]byte{})

	curve := self.Curve
	pk1, err := curve.GenerateKey(rnd)
	if nil != err {
		return wrapError(err, "failed generating pk1")
	}
	self.privkeySize = len(pk1.Bytes())
	self.pubkeySize = len(pk1.PublicKey().Bytes())

	pk2, err := curve.GenerateKey(rnd)
	if nil != err {
		return wrapError(err, "failed generating pk2")
	}

	dhsec, err := pk1.ECDH(pk2.PublicKey())
	if nil != err {
		return wrapError(err, "failed generating dhsec")
	}
	self.dhsecSize = len(dhsec)

	return nil
}

var curveRegistry *utils.Registry[string, Curve]

// MustRegisterCurve adds curve to the Curve registry. It panics if name is already in use or curve is invalid.
func MustRegisterCurve(name string, curve ecdh.Curve, ec elliptic.Curve) {
	err := RegisterCurve(name, curve, ec)
	if nil != err {
		panic(err)
	}
}

// RegisterCurve adds curve to the Curve registry. It errors if name is already in use or curve is invalid.
// ec may be nil if the curve is not usable for certificate keys.
func RegisterCurve(name string, curve ecdh.Curve, ec elliptic.Curve) error {
	regcurve := Curve{Curve: curve, elliptic: ec, name: name}
	err := regcurve.init()
	if nil != err {
		return wrapError(err, "failed initializing Curve %s", name)
	}
	return wrapError(
		curveRegistry.Set(name, regcurve),
		"failed registering Curve algorithm, %s",
		name,
	)
}

// GetCurve loads Curve implementation from the registry. It errors if no curve was registered with name.
func GetCurve(name string) (Curve, error) {
	curve, found := curveRegistry.Get(name)
	if !found {
		return curve, newError("unsupported Curve algorithm, %s", name)
	}
	return curve, nil
}

// LookupCurve returns the registered Curve that wraps curve.
// It errors if curve was not registered.
func LookupCurve(curve ecdh.Curve) (Curve, error) {
	regcurve, found := curveRegistry.Find(func(c Curve) bool { return c.Curve == curve })
	if !found {
		return regcurve, newError("unregistered Curve %v", curve)
	}
	return regcurve, nil
}

// ListCurves returns the sorted names of the registered elliptic curves.
func ListCurves() []string {
	return curveRegistry.Names()
}

func init() {
	curveRegistry = utils.NewRegistry[string, Curve]()
	MustRegisterCurve(CURVE_X25519, ecdh.X25519(), nil)
	MustRegisterCurve(CURVE_P256, ecdh.P256(), elliptic.P256())
	MustRegisterCurve(CURVE_P384, ecdh.P384(), elliptic.P384())
	MustRegisterCurve(CURVE_P521, ecdh.P521(), elliptic.P521())
}
