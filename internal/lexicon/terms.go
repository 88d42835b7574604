package lexicon

// defaultTerms is the built-in Malay toxic slang list. Entries are matched as whole words
// after lowercasing and whitespace collapsing.
var defaultTerms = []string{
	"babi",
	"bangang",
	"bangsat",
	"barua",
	"bengap",
	"bodoh",
	"bongok",
	"butoh",
	"celaka",
	"cibai",
	"haram jadah",
	"jalang",
	"jubur",
	"keling",
	"kimak",
	"lahanat",
	"lancau",
	"mampus",
	"pantat",
	"pukimak",
	"puki",
	"sial",
	"sundal",
	"tongong",
	"anak haram",
	"kepala bapak kau",
	"bapok",
	"pondan",
	"setan",
	"bahlol",
}
