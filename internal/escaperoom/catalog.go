package escaperoom

import "slices"

const DefaultTheme Theme = "murder-mystery"

// ThemeInfo is what the setup screen lists.
type ThemeInfo struct {
	ID          Theme  `json:"id"`
	Name        string `json:"name"`
	Tagline     string `json:"tagline"`
	Description string `json:"description"`
}

// Catalog is the built-in, read-only puzzle content.
type Catalog struct {
	themes  []ThemeInfo
	puzzles map[Theme][]Puzzle
}

var builtin = newCatalog([]themeBundle{
	murderMystery(),
	ancientTomb(),
	spaceStation(),
})

// Builtin returns the content shipped with the game.
func Builtin() *Catalog { return builtin }

type themeBundle struct {
	info   ThemeInfo
	stages []Puzzle
}

func newCatalog(bundles []themeBundle) *Catalog {
	c := &Catalog{puzzles: make(map[Theme][]Puzzle, len(bundles))}
	for _, b := range bundles {
		c.themes = append(c.themes, b.info)
		stages := make([]Puzzle, len(b.stages))
		for i, p := range b.stages {
			p.Theme = b.info.ID
			p.Stage = i + 1
			stages[i] = p
		}
		c.puzzles[b.info.ID] = stages
	}
	return c
}

func (c *Catalog) Has(theme Theme) bool {
	_, ok := c.puzzles[theme]
	return ok
}

// Themes returns the themes in display order.
func (c *Catalog) Themes() []ThemeInfo { return slices.Clone(c.themes) }

func (c *Catalog) Theme(theme Theme) (ThemeInfo, bool) {
	for _, t := range c.themes {
		if t.ID == theme {
			return t, true
		}
	}
	return ThemeInfo{}, false
}

// Puzzle returns the built-in puzzle for stage of theme.
func (c *Catalog) Puzzle(theme Theme, stage int) (Puzzle, bool) {
	stages, ok := c.puzzles[theme]
	if !ok || stage < 1 || stage > len(stages) {
		return Puzzle{}, false
	}
	p := stages[stage-1]
	p.Evidence = slices.Clone(p.Evidence)
	p.Hints = slices.Clone(p.Hints)
	return p, true
}

func murderMystery() themeBundle {
	return themeBundle{
		info: ThemeInfo{
			ID:          "murder-mystery",
			Name:        "Murder at Blackwood Manor",
			Tagline:     "A storm, a locked study and a dead patriarch.",
			Description: "Lord Blackwood collapsed at his own birthday dinner. Work through the manor before the police arrive and the trail goes cold.",
		},
		stages: []Puzzle{
			{
				Title:       "The Cause of Death",
				Description: "Study the coroner's notes and the dinner menu. How did Lord Blackwood die?",
				Backstory:   "The guests were still at the table when the old man clutched his throat. The doctor swears it was no heart attack.",
				Kind: TextInput{
					Solution:     "cyanide-poisoning",
					Alternatives: []string{"cyanide", "cyanide poisoning"},
				},
				Evidence: []Evidence{
					{ID: "coroner", Title: "Coroner's Notes", Description: "Cherry-red skin. A faint smell of bitter almonds on the lips."},
					{ID: "menu", Title: "Dinner Menu", Description: "Almond soup, roast pheasant, and a port served only to the host."},
				},
				Hints: []string{
					"Focus on the smell the coroner mentions.",
					"Bitter almonds are a classic sign of one particular poison.",
					"The answer is the poison followed by how it was delivered.",
				},
			},
			{
				Title:       "Motive and Opportunity",
				Description: "Who had access to the port decanter after it left the cellar?",
				Backstory:   "The butler carried the decanter up at seven. Someone else touched it before it reached the table.",
				Kind: MultipleChoice{
					Options: []Option{
						{ID: "a", Label: "The butler"},
						{ID: "b", Label: "The niece"},
						{ID: "c", Label: "The family doctor"},
						{ID: "d", Label: "The gardener"},
					},
					Solution: "b",
				},
				Evidence: []Evidence{
					{ID: "log", Title: "Cellar Log", Description: "Port decanted at 18:45, signed by the butler."},
					{ID: "glove", Title: "Silk Glove", Description: "Found behind the sideboard, embroidered with the initials C.B."},
				},
				Hints: []string{
					"The glove was not dropped by a member of staff.",
					"Check which guest has the initials C.B.",
					"Charlotte Blackwood arrived from London that afternoon.",
				},
			},
			{
				Title:       "The Locked Desk",
				Description: "The study desk has a four-digit combination lock. Which year opens it?",
				Backstory:   "Lord Blackwood never trusted banks. Whatever he was hiding is in that desk.",
				Kind:        TextInput{Solution: "1847"},
				Evidence: []Evidence{
					{ID: "portrait", Title: "Family Portrait", Description: "A brass plate reads: Blackwood Manor, founded in the year of the great famine."},
					{ID: "diary", Title: "Torn Diary Page", Description: "\"The house and the lock share a birthday.\""},
				},
				Hints: []string{
					"The lock and the manor share something.",
					"Read the brass plate under the portrait.",
					"The great famine began in the mid 1840s; the manor was founded two years in.",
				},
			},
			{
				Title:       "The Hidden Document",
				Description: "What did the papers in the desk reveal as the true motive?",
				Backstory:   "A sealed envelope, a solicitor's letterhead and a very recent date.",
				Kind: TextInput{
					Solution:     "inheritance",
					Alternatives: []string{"the inheritance", "the will", "will"},
				},
				Evidence: []Evidence{
					{ID: "letter", Title: "Solicitor's Letter", Description: "Instructions to redraft the estate, cutting out one relative entirely."},
				},
				Hints: []string{
					"Who benefits when a rich man dies?",
					"The solicitor was told to change who receives the estate.",
				},
			},
			{
				Title:       "Breaking the Alibi",
				Description: "The niece claims she was in the conservatory all evening. Which witness breaks her alibi?",
				Backstory:   "Rain hammered the glass roof of the conservatory all night. Somebody noticed something odd about her shoes.",
				Kind: MultipleChoice{
					Options: []Option{
						{ID: "a", Label: "The cook, who saw her in the kitchen"},
						{ID: "b", Label: "The chauffeur, who saw dry shoes at nine"},
						{ID: "c", Label: "The maid, who heard the piano"},
					},
					Solution: "b",
				},
				Evidence: []Evidence{
					{ID: "weather", Title: "Weather Report", Description: "Heavy rain from 18:00. The conservatory roof is known to leak."},
					{ID: "statement", Title: "Chauffeur's Statement", Description: "\"Miss Charlotte's shoes were spotless when she came through the hall.\""},
				},
				Hints: []string{
					"Think about the leaking roof.",
					"Anyone in the conservatory that night would have wet feet.",
				},
			},
			{
				Title:       "The Accusation",
				Description: "Name the person who will inherit now that the will was never signed. They gave the niece the poison.",
				Backstory:   "Charlotte poured the port, but she did not buy the cyanide. The final answer is a first name.",
				Kind:        TextInput{Solution: "eleanor", Alternatives: []string{"eleanor blackwood", "lady eleanor"}},
				Evidence: []Evidence{
					{ID: "receipt", Title: "Chemist's Receipt", Description: "Potassium cyanide, for the wasps. Signed E. Blackwood."},
				},
				Hints: []string{
					"Look at the signature on the receipt.",
					"Lord Blackwood's widow shares his surname.",
				},
			},
		},
	}
}

func ancientTomb() themeBundle {
	return themeBundle{
		info: ThemeInfo{
			ID:          "ancient-tomb",
			Name:        "The Tomb of Amenkhet",
			Tagline:     "Sealed for three thousand years. Opened for one hour.",
			Description: "Your expedition breached a forgotten tomb in the Valley of the Kings. The chambers seal again at sunset.",
		},
		stages: []Puzzle{
			{
				Title:       "The Outer Seal",
				Description: "Which symbol of life completes the inscription on the door?",
				Backstory:   "Dust falls as the first door shudders. Three carved symbols glow; a fourth socket sits empty.",
				Kind:        TextInput{Solution: "ankh"},
				Evidence: []Evidence{
					{ID: "door", Title: "Door Inscription", Description: "Water, sun, breath and one empty socket shaped like a looped cross."},
				},
				Hints: []string{
					"The missing symbol is shaped like a cross with a loop on top.",
					"Egyptians carried it as the key of life.",
				},
			},
			{
				Title:       "The Star Chamber",
				Description: "The ceiling is painted with stars. Which constellation guided the pharaoh's soul?",
				Backstory:   "Air shafts point to a patch of painted sky, picked out in gold leaf.",
				Kind: MultipleChoice{
					Options: []Option{
						{ID: "a", Label: "Ursa Major"},
						{ID: "b", Label: "Orion"},
						{ID: "c", Label: "Cassiopeia"},
					},
					Solution: "b",
				},
				Hints: []string{
					"Egyptians linked this constellation with Osiris.",
					"Look for the three bright stars of a belt.",
				},
			},
			{
				Title:       "The Scales of Judgement",
				Description: "What is placed on the scale opposite the heart?",
				Backstory:   "A mural of Anubis weighing a heart. The opposite pan is empty, and the floor trembles.",
				Kind:        TextInput{Solution: "feather", Alternatives: []string{"a feather", "feather of maat", "the feather of maat"}},
				Evidence: []Evidence{
					{ID: "mural", Title: "Weighing Mural", Description: "The goddess Maat kneels beside the scale, an ostrich plume in her hair."},
				},
				Hints: []string{
					"Truth itself is being weighed.",
					"Look at what the goddess Maat wears.",
				},
			},
			{
				Title:       "The Count of Jars",
				Description: "How many canopic jars line the burial chamber in total?",
				Backstory:   "Every organ must travel to the afterlife. Amenkhet was buried with his two queens.",
				Kind:        TextInput{Solution: "12", Alternatives: []string{"twelve"}},
				Hints: []string{
					"Each body needs four jars.",
					"Count the pharaoh and both queens.",
				},
			},
			{
				Title:       "The Sunset Door",
				Description: "The last passage opens only for something that moves with the sun. What is it?",
				Backstory:   "A beam of evening light creeps across the hieroglyphs toward a keyhole-shaped gap.",
				Kind:        TextInput{Solution: "shadow", Alternatives: []string{"a shadow", "the shadow"}},
				Hints: []string{
					"It is always with you and never in front of the light.",
				},
			},
			{
				Title:       "The Name of the King",
				Description: "Speak the true name of the king to open the sarcophagus.",
				Backstory:   "Cartouches everywhere have been scratched out. Only one survives, half hidden under soot.",
				Kind:        TextInput{Solution: "amenkhet"},
				Evidence: []Evidence{
					{ID: "cartouche", Title: "Sooty Cartouche", Description: "A-M-E-N ... K-H-E-T"},
				},
				Hints: []string{
					"The name has been on every sign you passed.",
				},
			},
		},
	}
}

func spaceStation() themeBundle {
	return themeBundle{
		info: ThemeInfo{
			ID:          "space-station",
			Name:        "Halcyon Drift",
			Tagline:     "Life support failing. Crew missing. Clock running.",
			Description: "You wake aboard the research station Halcyon with no crew in sight and oxygen reserves dropping.",
		},
		stages: []Puzzle{
			{
				Title:       "Emergency Override",
				Description: "The cryo bay door wants a hexadecimal override code. What is it?",
				Backstory:   "Red lights pulse. A sticky note on the console is half burnt.",
				Kind:        TextInput{Solution: "4c7f"},
				Evidence: []Evidence{
					{ID: "note", Title: "Burnt Note", Description: "\"override = 19583 in hex, don't forget!!\""},
				},
				Hints: []string{
					"The note gives the code in decimal.",
					"Convert 19583 to base sixteen.",
				},
			},
			{
				Title:       "The Oxygen Leak",
				Description: "Which module is venting oxygen?",
				Backstory:   "Pressure readings scroll past. One module reads lower every minute.",
				Kind: MultipleChoice{
					Options: []Option{
						{ID: "a", Label: "Command"},
						{ID: "b", Label: "Hydroponics"},
						{ID: "c", Label: "Docking ring"},
						{ID: "d", Label: "Laboratory"},
					},
					Solution: "b",
				},
				Evidence: []Evidence{
					{ID: "pressure", Title: "Pressure Log", Description: "Command 101 kPa, Hydroponics 87 kPa and falling, Docking 101 kPa, Lab 100 kPa."},
				},
				Hints: []string{
					"Compare the readings in the pressure log.",
				},
			},
			{
				Title:       "Navigation Lock",
				Description: "The autopilot is set on a star. Name the star to unlock navigation.",
				Backstory:   "The last course correction pointed at the brightest star in Lyra.",
				Kind:        TextInput{Solution: "vega"},
				Hints: []string{
					"Lyra is a small constellation with one very bright star.",
					"It is part of the Summer Triangle.",
				},
			},
			{
				Title:       "The Distress Call",
				Description: "Decode the signal the crew left on repeat: -- .- -.-- -.. .- -.--",
				Backstory:   "The radio crackles with a looping morse message.",
				Kind:        TextInput{Solution: "mayday"},
				Hints: []string{
					"Each group is one letter in morse code.",
					"The first letter is M.",
				},
			},
			{
				Title:       "Escape Pod Protocol",
				Description: "Which procedure must run before the escape pod can launch?",
				Backstory:   "The pod bay computer refuses to release the clamps.",
				Kind: MultipleChoice{
					Options: []Option{
						{ID: "a", Label: "Seal the pod hatch"},
						{ID: "b", Label: "Vent the airlock"},
						{ID: "c", Label: "Disable the reactor"},
					},
					Solution: "a",
				},
				Hints: []string{
					"Nothing leaves with an open door.",
				},
			},
			{
				Title:       "The Station's Secret",
				Description: "The crew left in a hurry. Name the classified project they abandoned.",
				Backstory:   "The captain's log has one word circled three times. It is also painted on the hull.",
				Kind:        TextInput{Solution: "halcyon", Alternatives: []string{"project halcyon"}},
				Hints: []string{
					"You have been reading it since you woke up.",
				},
			},
		},
	}
}
