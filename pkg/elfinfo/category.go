package elfinfo

import "strings"

// Category groups artifacts by the linker tables they contribute to.
type Category string

const (
	CategoryProtocol Category = "net_protocols"
	CategoryDriver   Category = "drivers"
	CategoryImage    Category = "images"
	CategoryOther    Category = "others"
)

// Categories lists every category in precedence order.
var Categories = []Category{CategoryProtocol, CategoryDriver, CategoryImage, CategoryOther}

// CategoryOf classifies an artifact from its section names. An artifact
// matching several tables takes the first category in precedence order.
func CategoryOf(sections []Section) Category {
	var driver, image bool
	for _, s := range sections {
		if !strings.HasPrefix(s.Name, ".tbl") {
			continue
		}
		if strings.Contains(s.Name, "_protocols") {
			return CategoryProtocol
		}
		if strings.Contains(s.Name, "_drivers") {
			driver = true
		}
		if strings.HasPrefix(s.Name, ".tbl.image_types") {
			image = true
		}
	}
	switch {
	case driver:
		return CategoryDriver
	case image:
		return CategoryImage
	default:
		return CategoryOther
	}
}
