package domain

var Categories = []string{
	"Pain Relievers",
	"Antibiotics",
	"Anti-inflammatories",
	"Blood Pressure",
	"Diabetes",
	"Digestive",
	"Allergy",
	"Respiratory",
	"Neurology & Sleep",
	"Cardiac",
	"Hormones",
	"Pediatrics",
	"Psychiatric",
	"Vitamins & Supplements",
	"Herbal & Natural",
	"Cosmetics",
	"Medical Supplies",
	"Personal Care",
}

func IsCategory(value string) bool {
	for _, c := range Categories {
		if c == value {
			return true
		}
	}
	return false
}
