package telephony

import (
	"sort"
	"strings"

	"bitbucket.org/vservices/ms-vservices-ussd/logger"
)

var log = logger.NewLogger()

//Permissions is a fixed set of granted privileges, normally from config
type Permissions struct {
	granted map[string]bool
}

func StaticPermissions(granted ...string) Permissions {
	p := Permissions{granted: map[string]bool{}}
	for _, name := range granted {
		name = strings.TrimSpace(name)
		if name != "" {
			p.granted[name] = true
		}
	}
	log.Debugf("granted permissions: %v", p.List())
	return p
}

func (p Permissions) Granted(permission string) bool {
	return p.granted[permission]
}

func (p Permissions) List() []string {
	list := make([]string, 0, len(p.granted))
	for name := range p.granted {
		list = append(list, name)
	}
	sort.Strings(list)
	return list
}
