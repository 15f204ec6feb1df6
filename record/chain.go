package record

import "fmt"

type step struct {
	kind Kind
	from uint16
}

// upgrades maps (kind, v) to a function producing (kind, v+1).
var upgrades = map[step]func(Record) (Record, error){
	{KindIdentity, 1}: upgradeIdentityV1,
	{KindService, 1}:  upgradeServiceV1,
}

// Upgrade applies the upgrade chain until rec reaches the current schema of
// its kind. A record already current is returned unchanged.
func Upgrade(rec Record) (Record, error) {
	current := CurrentVersion(rec.Kind())
	for rec.SchemaVersion() < current {
		fn, ok := upgrades[step{rec.Kind(), rec.SchemaVersion()}]
		if !ok {
			return nil, fmt.Errorf("no upgrade from %s v%d: %w", rec.Kind(), rec.SchemaVersion(), ErrUnknownVersion)
		}
		next, err := fn(rec)
		if err != nil {
			return nil, err
		}
		rec = next
	}
	return rec, nil
}

// AsIdentity upgrades rec and returns it as the current identity schema.
func AsIdentity(rec Record) (*Identity, error) {
	up, err := Upgrade(rec)
	if err != nil {
		return nil, err
	}
	id, ok := up.(*Identity)
	if !ok {
		return nil, fmt.Errorf("%s is not an identity record: %w", up.Kind(), ErrUnknownVersion)
	}
	return id, nil
}

// AsService upgrades rec and returns it as the current service schema.
func AsService(rec Record) (*Service, error) {
	up, err := Upgrade(rec)
	if err != nil {
		return nil, err
	}
	svc, ok := up.(*Service)
	if !ok {
		return nil, fmt.Errorf("%s is not a service record: %w", up.Kind(), ErrUnknownVersion)
	}
	return svc, nil
}
