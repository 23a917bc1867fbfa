package ui

import "github.com/fatih/color"

var (
	SectionHeaderColor = color.New(color.BgHiBlue, color.FgHiWhite, color.Bold)
	NameColor          = color.New(color.FgHiCyan)
	DimColor           = color.New(color.Faint)
)
