package gateway

import "chronoreel/internal/model"

// FallbackOptions is the static option set shown when the backend cannot be
// reached. It only covers the per-install configuration space; mutating
// operations never degrade to fabricated responses.
func FallbackOptions() model.AvailableOptions {
	return model.AvailableOptions{
		EraPresets: []model.EraPreset{
			{
				PresetName:  "roma_antica",
				DisplayName: "Roma Antica (100 a.C.)",
				Description: "Una giornata nella vita di un giovane cittadino romano",
			},
			{
				PresetName:  "usa_1990",
				DisplayName: "USA Anni '90",
				Description: "Una giornata nella vita di un teenager americano degli anni '90",
			},
			{
				PresetName:  "cyberpunk_tokyo",
				DisplayName: "Cyberpunk Tokyo 2080",
				Description: "Una giornata nella vita di un cyber-enhanced in Tokyo futuristica",
			},
		},
		MusicTracks: []model.MusicTrack{},
		AvailableRatios: []string{
			"720:1280", // 9:16 vertical
			"1280:720", // 16:9 horizontal
			"1104:832", // 4:3
			"832:1104", // 3:4
			"960:960",  // 1:1
			"1584:672", // ultra-wide
		},
		DurationOptions: []int{10, 15, 20, 25, 30},
		Fallback:        true,
	}
}
