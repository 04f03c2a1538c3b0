package plugin

import "regexp"

// The built-in validator plugins, adapted from the SCIM server's
// object-level validators to operate on a rendered object's JSON id
// instead of a decoded ss12000v1.Object.

var uuidPattern = regexp.MustCompile(`(?i)^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}$`)

// UUIDValidator blocks any object whose id isn't a canonical UUID.
func UUIDValidator() Plugin {
	return Func{
		ClassifyFunc: func(_ string, id string, _ string) Classification {
			if uuidPattern.MatchString(id) {
				return Process
			}
			return Block
		},
	}
}

var schoolUnitCodePattern = regexp.MustCompile(`"schoolUnitCode"\s*:\s*"([0-9]{8})"`)

// SchoolUnitCodeValidator blocks SchoolUnit objects whose
// schoolUnitCode attribute isn't an 8-digit code. Other types pass
// through untouched.
func SchoolUnitCodeValidator() Plugin {
	return Func{
		ClassifyFunc: func(objType, _ string, json string) Classification {
			if objType != "SchoolUnit" {
				return Process
			}
			if schoolUnitCodePattern.MatchString(json) {
				return Process
			}
			return Block
		},
	}
}
