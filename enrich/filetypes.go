package enrich

// Filetype groups for filetypes the service does not report or that are not in the table
const (
	FiletypeUnknown = "Unknown"
	FiletypeNewType = "NewTypeEh"
)

var filetypeGroups = map[string]string{
	"7zip Archive":                            "7zip",
	"7zip Archivez":                           "7zip",
	"Adobe Flash File":                        "Flash",
	"Android APK":                             "Android",
	"Apple's Universal binary file":           "MacOSX",
	"DLL":                                     "DLL",
	"DLL64":                                   "DLL",
	"ELF":                                     "ELF",
	"JAVA Class":                              "JAVA",
	"JAVA JAR":                                "Java",
	"Link":                                    "Link",
	"Mac OS X app bundle in ZIP archive":      "MacOSX",
	"Mac OS X app installer":                  "MacOSX",
	"Mach-O":                                  "MacOSX",
	"MacOSX DMG":                              "MacOSX",
	"Macro":                                   "Macro",
	"Microsoft Excel 97 - 2003 Document":      "Excel",
	"Microsoft Excel Document":                "Excel",
	"Microsoft PowerPoint 97 - 2003 Document": "Powerpoint",
	"Microsoft PowerPoint Document":           "Powerpoint",
	"Microsoft Word 97 - 2003 Document":       "Word",
	"Microsoft Word Document":                 "Word",
	"PDF":                                     "PDF",
	"PE":                                      "PE",
	"PE64":                                    "PE",
	"RAR Archive":                             "RAR Archive",
	"RTF":                                     "RTF",
}

// FiletypeGroup returns the filetype to record and its display group
func FiletypeGroup(filetype *string) (string, string) {
	if filetype == nil {
		return FiletypeUnknown, FiletypeUnknown
	}
	if group, ok := filetypeGroups[*filetype]; ok {
		return *filetype, group
	}
	return *filetype, FiletypeNewType
}
