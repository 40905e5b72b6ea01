package runs

const (
	SectionBattleReport Section = "battleReport"
	SectionCombat       Section = "combat"
	SectionUtility      Section = "utility"
)

// Keys read by the header and derived metrics.
const (
	KeyGameTime           Key = "gameTime"
	KeyRealTime           Key = "realTime"
	KeyTier               Key = "tier"
	KeyWave               Key = "wave"
	KeyKilledBy           Key = "killedBy"
	KeyCoinsEarned        Key = "coinsEarned"
	KeyCellsEarned        Key = "cellsEarned"
	KeyRerollShardsEarned Key = "rerollShardsEarned"
	KeyDamageDealt        Key = "damageDealt"
)

// defineSection declares every key as a large number, then applies overrides.
func defineSection(name Section, keys []Key, overrides map[Key]FieldConfig) SectionDef {
	def := SectionDef{Name: name, Keys: make([]KeyDef, 0, len(keys))}
	for _, k := range keys {
		cfg, ok := overrides[k]
		if !ok {
			cfg = LargeNumberField(k)
		}
		def.Keys = append(def.Keys, KeyDef{Key: k, Config: cfg})
	}
	return def
}

// BattleReport is the first summary screen.
func BattleReport() SectionDef {
	return defineSection(SectionBattleReport, []Key{
		KeyGameTime,
		KeyRealTime,
		KeyTier,
		KeyWave,
		KeyKilledBy,
		KeyCoinsEarned,
		"cashEarned",
		"interestEarned",
		"gemBlocksTapped",
		KeyCellsEarned,
		KeyRerollShardsEarned,
	}, map[Key]FieldConfig{
		KeyGameTime:       TimespanField(KeyGameTime),
		KeyRealTime:       TimespanField(KeyRealTime),
		KeyTier:           IntegerPlusField(KeyTier),
		KeyWave:           IntegerField(KeyWave),
		"gemBlocksTapped": IntegerField("gemBlocksTapped"),
		KeyKilledBy:       TextField(KeyKilledBy),
	})
}

// Combat holds damage dealt and taken. Keys ending in "Damage" are damage sources.
func Combat() SectionDef {
	return defineSection(SectionCombat, []Key{
		"damageTaken",
		"damageTakenWall",
		"damageTakenWhileBerserked",
		"damageGainFromBerserk",
		"deathDefy",
		"lifesteal",
		KeyDamageDealt,
		"projectilesDamage",
		"projectilesCount",
		"thornDamage",
		"orbDamage",
		"landMineDamage",
		"landMinesSpawned",
		"renderArmorDamage",
		"deathRayDamage",
		"smartMissileDamage",
		"innerLandMineDamage",
		"chainLightningDamage",
		"deathWaveDamage",
		"swampDamage",
		"blackHoleDamage",
	}, map[Key]FieldConfig{
		"deathDefy":             IntegerField("deathDefy"),
		"damageGainFromBerserk": MultiplierField("damageGainFromBerserk"),
	})
}

func Utility() SectionDef {
	return defineSection(SectionUtility, []Key{
		"wavesSkipped",
		"recoveryPackages",
		"freeAttackUpgrade",
		"freeDefenseUpgrade",
		"freeUtilityUpgrade",
		"hpFromDeathWave",
		"coinsFromDeathWave",
		"coinsFromGoldenTower",
		"cashFromGoldenTower",
		"coinsFromBlackhole",
		"coinsFromSpotlight",
	}, map[Key]FieldConfig{
		"wavesSkipped":       IntegerField("wavesSkipped"),
		"recoveryPackages":   IntegerField("recoveryPackages"),
		"freeAttackUpgrade":  IntegerField("freeAttackUpgrade"),
		"freeDefenseUpgrade": IntegerField("freeDefenseUpgrade"),
		"freeUtilityUpgrade": IntegerField("freeUtilityUpgrade"),
	})
}

// Default is the schema of the end-of-run screens, built once at init.
var Default = MustNewRegistry(BattleReport(), Combat(), Utility())
