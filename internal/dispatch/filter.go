package dispatch

import "github.com/eliteGoblin/focusd/grayd/internal/domain"

// Drop reasons reported to Hooks.EventDropped.
const (
	DropInactive       = "inactive"
	DropPaused         = "paused"
	DropEmptyPackage   = "empty_package"
	DropRepeatPackage  = "repeat_package"
	DropIgnoredClass   = "ignored_class"
	DropIgnoredPackage = "ignored_package"
	DropInputMethod    = "input_method"
	DropNoScrollSource = "no_scroll_source"
	DropEmptyScroll    = "empty_scroll"
	DropNoScrollViewID = "no_scroll_view_id"
	DropUnknownEvent   = "unknown_event"
)

type stringSet map[string]struct{}

func newStringSet(items []string) stringSet {
	s := make(stringSet, len(items))
	for _, it := range items {
		if it != "" {
			s[it] = struct{}{}
		}
	}
	return s
}

func (s stringSet) has(v string) bool {
	_, ok := s[v]
	return ok
}

// appOpenedDropReason returns why an AppOpened event is filtered, or "" if it
// should be dispatched.
func (s *Service) appOpenedDropReason(ev domain.AppOpened) string {
	switch {
	case ev.PackageID == "":
		return DropEmptyPackage
	case ev.PackageID == s.lastPackageID:
		return DropRepeatPackage
	case s.ignoredClasses.has(ev.EventClass):
		return DropIgnoredClass
	case s.ignoredPackages.has(ev.PackageID):
		return DropIgnoredPackage
	case s.inputMethods.has(ev.PackageID):
		return DropInputMethod
	}
	return ""
}

// ScrollViewID derives a stable identifier for the scrolled view from the
// window class and the view or source id. ok is false when no identifier can
// be derived.
func ScrollViewID(ev domain.ScrollEvent) (id string, ok bool) {
	if ev.EventClass == "" {
		return "", false
	}
	switch {
	case ev.ViewID != "":
		return ev.EventClass + ":" + ev.ViewID, true
	case ev.SourceID != "":
		return ev.EventClass + ":" + ev.SourceID, true
	}
	return "", false
}

// scrollDropReason returns why a scroll event is filtered, or "" with the
// derived view id if it should be dispatched.
func scrollDropReason(ev domain.ScrollEvent) (reason, viewID string) {
	if !ev.SourcePresent {
		return DropNoScrollSource, ""
	}
	if ev.ItemCount <= 0 && ev.MaxScrollExtent == -1 {
		return DropEmptyScroll, ""
	}
	id, ok := ScrollViewID(ev)
	if !ok {
		return DropNoScrollViewID, ""
	}
	return "", id
}
