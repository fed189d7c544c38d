package config

const sampleConfig = `# home-energy configuration
#
# Every section is optional. An adapter whose section is missing stays idle,
# an adapter whose section is incomplete logs a FATAL message and stops
# without affecting the others.

[logging]
level = "info"

# [mqtt]
# broker = "tcp://localhost:1883"
# client_id = "home-energy"
# username = ""
# password = ""
# discovery_prefix = "homeassistant"
# base_topic = "home-energy"
# statestream_prefix = "homeassistant/statestream"

# [http]
# port = 8080

# [crdb]
# connect = "postgresql://root@localhost:26257/home?sslmode=disable"

# [nordpool]
# area = "NO2"
# currency = "NOK"
# timezone = "Europe/Oslo"
# unit = "kr"
# sensor_id = "sensor.strompris_nordpool_no2"
# sensor_name = "Nord Pool NO2"
# subsidized_sensor_id = "sensor.strompris_nordpool_no2_med_stromstotte"
# subsidized_sensor_name = "Nord Pool NO2 med stromstotte"

# Cost sensors multiply energy deltas with the current tariff.
#
#   name      human readable name of the cost sensor
#   unique_id entity id of the cost sensor, e.g. sensor.my_cost
#   tariff    entity id of the sensor holding the price per unit
#   energy    entity id of the sensor holding the meter reading
#   cron      optional reset schedule: "daily", "monthly" or "yearly"
#
# [[cost_sensors]]
# name = "Kitchen Cost"
# unique_id = "sensor.kitchen_energy_cost"
# tariff = "sensor.strompris_nordpool_no2"
# energy = "sensor.kitchen_energy"
# cron = "daily"

# [unifi]
# base_url = "https://10.1.1.2/proxy/network/integration/"
# api_key = ""
# poll_interval_seconds = 5
#
# Legacy controllers can be polled with a username and password instead.
# address = "10.1.1.2"
# port = "8443"
# site = "default"
# user = ""
# pass = ""
#
# [[unifi.networks]]
# name = "Default"
# vlan = "192.168.1.0/24"
#
# [[unifi.trackers]]
# name = "Phone"
# mac_address = "3c:6d:89:86:ba:a6"

# Meter readings posted as JSON, see jsontohttp. Requires [http].
# [meter]
# path = "/meter"
# [meter.names]
# "aa:bb:cc:dd:ee:ff" = "kitchen"

# [fronius]
# address = "10.1.1.69"
# poll_interval_seconds = 20

# [tariff]
# sensor_id = "sensor.grid_tariff"
# timezone = "Europe/Oslo"
# peak_start_hour = 6
# peak_end_hour = 22
# peak_per_kwh = 0.4254
# offpeak_per_kwh = 0.3254

# [price_alert]
# sensor_id = "sensor.strompris_nordpool_no2"
# threshold = 3.0
# cooldown_hours = 12

# [email]
# smtp_from = ""
# smtp_to = ""
# smtp_username = ""
# smtp_password = ""
# smtp_host = ""
# smtp_port = 587

# [datadog]
# keys = ["sensor.strompris_nordpool_no2", "sensor.kitchen_energy_cost"]
`
