package names

// Nicknames maps a diminutive given name to the formal name it abbreviates.
// Only unambiguous diminutives belong here: "pat" could be Patrick or Patricia, so it is absent.
type Nicknames struct {
	roots map[string]string
}

var defaultNicknames = map[string]string{
	"alex": "alexander", "xander": "alexander", "sasha": "alexandra",
	"andy": "andrew", "drew": "andrew",
	"tony": "anthony",
	"barb": "barbara", "babs": "barbara",
	"ben": "benjamin", "benny": "benjamin", "benji": "benjamin",
	"chris": "christopher", "topher": "christopher",
	"dan": "daniel", "danny": "daniel",
	"dave": "david", "davey": "david",
	"liz": "elizabeth", "beth": "elizabeth", "betty": "elizabeth", "eliza": "elizabeth", "libby": "elizabeth",
	"fred": "frederick", "freddy": "frederick",
	"greg": "gregory",
	"jen":  "jennifer", "jenny": "jennifer",
	"jon": "jonathan",
	"jim": "james", "jimmy": "james",
	"joe":  "joseph",
	"jeff": "jeffrey",
	"kate": "katherine", "kathy": "katherine", "katie": "katherine",
	"ken":   "kenneth",
	"larry": "lawrence",
	"matt":  "matthew",
	"mike":  "michael", "mick": "michael", "mickey": "michael",
	"nick": "nicholas", "nicky": "nicholas",
	"patty": "patricia", "tricia": "patricia",
	"phil":  "philip",
	"ray":   "raymond",
	"becky": "rebecca", "becca": "rebecca",
	"rick": "richard", "rich": "richard", "ricky": "richard", "dick": "richard",
	"rob": "robert", "bob": "robert", "bobby": "robert",
	"ron":   "ronald",
	"steph": "stephanie",
	"steve": "stephen",
	"ted":   "theodore", "theo": "theodore",
	"tim": "timothy",
	"tom": "thomas", "tommy": "thomas",
	"vic":  "victor",
	"walt": "walter",
	"will": "william", "bill": "william", "billy": "william",
}

// DefaultNicknames returns the built-in diminutive table.
func DefaultNicknames() Nicknames {
	return NewNicknames(nil)
}

// NewNicknames returns the built-in table extended by extra. Keys and values are folded,
// and entries in extra override built-in ones.
func NewNicknames(extra map[string]string) Nicknames {
	roots := make(map[string]string, len(defaultNicknames)+len(extra))
	for k, v := range defaultNicknames {
		roots[k] = v
	}
	for k, v := range extra {
		k, v = Fold(k), Fold(v)
		if k == "" || v == "" || k == v {
			continue
		}
		roots[k] = v
	}
	return Nicknames{roots: roots}
}

// Key returns the formal root for a folded token, or the token itself.
func (n Nicknames) Key(token string) string {
	if root, ok := n.roots[token]; ok {
		return root
	}
	return token
}

// Len returns the number of diminutives known.
func (n Nicknames) Len() int {
	return len(n.roots)
}
