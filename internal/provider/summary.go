package provider

// Role selecciona la audiencia del listado.
type Role string

const (
	// RoleForum: solo proveedores habilitados, con {name, icon, priority}.
	RoleForum Role = "forum"
	// RoleAdmin: todos los proveedores, con {name, icon, link, fields}.
	RoleAdmin Role = "admin"
)

// Valid reporta si r es un rol conocido.
func (r Role) Valid() bool { return r == RoleForum || r == RoleAdmin }

// Summary es la proyección de un Descriptor para presentación.
// Nunca contiene valores de configuración, solo nombres de campos.
type Summary struct {
	Name     string                 `json:"name"`
	Icon     string                 `json:"icon"`
	Priority *int                   `json:"priority,omitempty"`
	Link     string                 `json:"link,omitempty"`
	Fields   map[string]Requirement `json:"fields,omitempty"`
}

func forumSummary(d Descriptor) Summary {
	p := d.Priority()
	return Summary{Name: d.Name(), Icon: d.Icon(), Priority: &p}
}

func adminSummary(d Descriptor) Summary {
	return Summary{Name: d.Name(), Icon: d.Icon(), Link: d.Link(), Fields: d.Fields()}
}
