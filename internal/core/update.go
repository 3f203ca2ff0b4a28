package core

// UpdateCategory names a push notification element.
type UpdateCategory string

const (
	UpdateVolume          UpdateCategory = "volumeUpdated"
	UpdateNowPlaying      UpdateCategory = "nowPlayingUpdated"
	UpdateZone            UpdateCategory = "zoneUpdated"
	UpdatePresets         UpdateCategory = "presetsUpdated"
	UpdateBass            UpdateCategory = "bassUpdated"
	UpdateSources         UpdateCategory = "sourcesUpdated"
	UpdateInfo            UpdateCategory = "infoUpdated"
	UpdateConnectionState UpdateCategory = "connectionStateUpdated"
	UpdateNowSelection    UpdateCategory = "nowSelectionUpdated"
	UpdateRecents         UpdateCategory = "recentsUpdated"
	UpdateAccountMode     UpdateCategory = "acctModeUpdated"

	// UpdateAll subscribes to every category.
	UpdateAll UpdateCategory = "*"
)

// UpdateCategories lists the recognized categories in wire order.
var UpdateCategories = []UpdateCategory{
	UpdateVolume,
	UpdateNowPlaying,
	UpdateZone,
	UpdatePresets,
	UpdateBass,
	UpdateSources,
	UpdateInfo,
	UpdateConnectionState,
	UpdateNowSelection,
	UpdateRecents,
	UpdateAccountMode,
}

// KnownUpdate reports whether c is a recognized category.
func KnownUpdate(c UpdateCategory) bool {
	for _, k := range UpdateCategories {
		if k == c {
			return true
		}
	}
	return false
}

// UpdateEvent signals that a device's state may have changed.
type UpdateEvent struct {
	DeviceID string
	Category UpdateCategory
	// Payload is the inner XML of the category element.
	Payload []byte
}

// UpdateHandler receives update events.
type UpdateHandler func(UpdateEvent)
