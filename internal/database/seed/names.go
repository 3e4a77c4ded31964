// Package seed provides demo data for a pharmacy: a medicine catalog, stock
// received into batches, and reviewed prescriptions waiting to be dispensed.
package seed

// MedicineTemplate is one catalog entry to seed.
type MedicineTemplate struct {
	Code        string
	Name        string
	GenericName string
	Category    string
	Unit        string
	MinStock    int64
	MaxStock    int64
	SafetyStock int64
	// Price is the retail unit price; purchase prices are derived from it.
	Price      string
	Controlled bool
	// PackSize is the unit multiple batches are received in.
	PackSize int64
}

// Medicines is the seeded catalog.
var Medicines = []MedicineTemplate{
	{"AMOX-500", "Amoxicillin 500mg", "amoxicillin", "ANTIBIOTIC", "capsule", 60, 1200, 40, "0.45", false, 21},
	{"AZIT-250", "Azithromycin 250mg", "azithromycin", "ANTIBIOTIC", "tablet", 24, 400, 12, "1.20", false, 6},
	{"CIPR-500", "Ciprofloxacin 500mg", "ciprofloxacin", "ANTIBIOTIC", "tablet", 30, 500, 20, "0.85", false, 10},
	{"IBU-400", "Ibuprofen 400mg", "ibuprofen", "ANALGESIC", "tablet", 100, 2000, 60, "0.08", false, 24},
	{"PARA-500", "Paracetamol 500mg", "paracetamol", "ANALGESIC", "tablet", 200, 4000, 100, "0.05", false, 32},
	{"TRAM-50", "Tramadol 50mg", "tramadol", "ANALGESIC", "capsule", 30, 300, 20, "0.60", true, 30},
	{"MORP-10", "Morphine sulfate 10mg", "morphine", "OPIOID", "tablet", 20, 200, 10, "1.75", true, 20},
	{"WARF-5", "Warfarin 5mg", "warfarin", "ANTICOAGULANT", "tablet", 56, 600, 28, "0.22", false, 28},
	{"ATOR-20", "Atorvastatin 20mg", "atorvastatin", "STATIN", "tablet", 90, 1500, 56, "0.18", false, 28},
	{"METF-850", "Metformin 850mg", "metformin", "ANTIDIABETIC", "tablet", 120, 2400, 60, "0.07", false, 56},
	{"LISI-10", "Lisinopril 10mg", "lisinopril", "ACE_INHIBITOR", "tablet", 60, 1200, 28, "0.10", false, 28},
	{"OMEP-20", "Omeprazole 20mg", "omeprazole", "PPI", "capsule", 60, 1400, 28, "0.12", false, 28},
	{"SALB-100", "Salbutamol inhaler 100mcg", "salbutamol", "BRONCHODILATOR", "inhaler", 10, 120, 5, "4.50", false, 1},
	{"INSU-100", "Insulin glargine 100U/ml", "insulin glargine", "ANTIDIABETIC", "pen", 10, 100, 5, "18.00", false, 5},
	{"PRED-5", "Prednisolone 5mg", "prednisolone", "CORTICOSTEROID", "tablet", 56, 800, 28, "0.09", false, 28},
	{"CETI-10", "Cetirizine 10mg", "cetirizine", "ANTIHISTAMINE", "tablet", 30, 900, 14, "0.06", false, 30},
}

// Locations are shelf locations batches are received into.
var Locations = []string{"A-01", "A-02", "A-03", "B-01", "B-02", "C-FRIDGE", "SAFE-01"}

// Prescribers issue the seeded prescriptions.
var Prescribers = []string{"dr-adams", "dr-chen", "dr-garcia", "dr-nguyen", "dr-okafor", "dr-patel"}

// Surnames build patient identifiers.
var Surnames = []string{
	"Adams", "Anderson", "Baker", "Barnes", "Bell", "Bennett", "Brooks",
	"Brown", "Butler", "Campbell", "Carter", "Chen", "Clark", "Collins",
	"Cooper", "Cruz", "Davis", "Diaz", "Edwards", "Evans", "Fisher",
	"Flores", "Foster", "Garcia", "Gonzalez", "Gray", "Green", "Hall",
	"Harris", "Hayes", "Henderson", "Hernandez", "Hill", "Howard", "Hughes",
	"Jackson", "James", "Jenkins", "Johnson", "Jones", "Kelly", "Kim",
	"King", "Lee", "Lewis", "Long", "Lopez", "Martin", "Martinez",
	"Miller", "Mitchell", "Moore", "Morgan", "Morris", "Murphy", "Nelson",
	"Nguyen", "Parker", "Patterson", "Perez", "Perry", "Peterson", "Phillips",
	"Powell", "Price", "Ramirez", "Reed", "Reyes", "Richardson", "Rivera",
	"Roberts", "Robinson", "Rodriguez", "Rogers", "Ross", "Russell", "Sanchez",
	"Sanders", "Scott", "Simmons", "Smith", "Stewart", "Sullivan", "Taylor",
	"Thomas", "Thompson", "Torres", "Turner", "Walker", "Ward", "Washington",
	"Watson", "White", "Williams", "Wilson", "Wood", "Wright", "Young",
}

// Dosages are sig lines for prescription items.
var Dosages = []string{
	"1 tablet once daily",
	"1 tablet twice daily",
	"1 three times daily after meals",
	"2 every 6 hours as needed",
	"1 at night",
	"as directed",
}
