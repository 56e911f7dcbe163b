package timescaledb

const createTableSQL = `
CREATE TABLE IF NOT EXISTS archive (
    time timestamp WITH TIME ZONE NOT NULL,
    stationname text NOT NULL,
    interval integer NOT NULL,
    barometer float4 NULL,
    pressure float4 NULL,
    altimeter float4 NULL,
    intemp float4 NULL,
    outtemp float4 NULL,
    inhumidity float4 NULL,
    outhumidity float4 NULL,
    windspeed float4 NULL,
    winddir float4 NULL,
    windgust float4 NULL,
    windgustdir float4 NULL,
    rainrate float4 NULL,
    rain float4 NULL,
    dewpoint float4 NULL,
    windchill float4 NULL,
    heatindex float4 NULL,
    et float4 NULL,
    radiation float4 NULL,
    uv float4 NULL,
    extratemp1 float4 NULL,
    soiltemp1 float4 NULL,
    leafwet1 float4 NULL,
    rxcheckpercent float4 NULL,
    PRIMARY KEY (stationname, time)
);`

const createExtensionSQL = `CREATE EXTENSION IF NOT EXISTS timescaledb;`

const createHypertableSQL = `SELECT create_hypertable('archive', 'time', if_not_exists => true);`

const createCircAvgStateTypeSQL = `CREATE TYPE circular_avg_state AS (
    sin_sum real,
    cos_sum real,
    accum real
);`

const createCircAvgStateFunctionSQL = `CREATE OR REPLACE FUNCTION circular_avg_state_accumulator(state circular_avg_state, reading real)
RETURNS circular_avg_state
STRICT
IMMUTABLE
LANGUAGE plpgsql
AS $$
BEGIN
    RETURN ROW(state.sin_sum + SIND(reading), state.cos_sum + COSD(reading), state.accum + 1)::public.circular_avg_state;
END;
$$;`

const createCircAvgCombinerFunctionSQL = `CREATE OR REPLACE FUNCTION circular_avg_state_combiner(state1 circular_avg_state, state2 circular_avg_state)
RETURNS circular_avg_state
STRICT
IMMUTABLE
LANGUAGE plpgsql
AS $$
BEGIN
    RETURN ROW(state1.sin_sum + state2.sin_sum, state1.cos_sum + state2.cos_sum, state1.accum + state2.accum)::public.circular_avg_state;
END;
$$;`

const createCircAvgFinalizerFunctionSQL = `CREATE OR REPLACE FUNCTION circular_avg_final(state circular_avg_state)
RETURNS real
STRICT
IMMUTABLE
LANGUAGE plpgsql
AS $$
DECLARE
    deg real;
BEGIN
    IF state.accum = 0 THEN
        RETURN NULL;
    END IF;
    deg := ATAN2D(state.sin_sum / state.accum, state.cos_sum / state.accum);
    IF deg < 0 THEN
        deg := deg + 360;
    END IF;
    RETURN deg;
END;
$$;`

const createCircAvgAggregateFunctionSQL = `CREATE OR REPLACE AGGREGATE circular_avg (real)
(
    SFUNC = circular_avg_state_accumulator,
    STYPE = public.circular_avg_state,
    COMBINEFUNC = circular_avg_state_combiner,
    FINALFUNC = circular_avg_final,
    INITCOND = '(0,0,0)',
    PARALLEL = SAFE
);`

const create1hViewSQL = `CREATE MATERIALIZED VIEW IF NOT EXISTS archive_1h
WITH (timescaledb.continuous, timescaledb.materialized_only = false)
AS
SELECT
    time_bucket('1 hour', time) AS bucket,
    stationname,
    avg(barometer) AS barometer,
    avg(outtemp) AS outtemp,
    max(outtemp) AS max_outtemp,
    min(outtemp) AS min_outtemp,
    avg(outhumidity) AS outhumidity,
    avg(dewpoint) AS dewpoint,
    circular_avg(winddir) AS winddir,
    avg(windspeed) AS windspeed,
    max(windgust) AS max_windgust,
    sum(rain) AS rain,
    max(rainrate) AS max_rainrate,
    sum(et) AS et,
    avg(radiation) AS radiation,
    max(uv) AS max_uv
FROM archive
GROUP BY bucket, stationname;`

const create1dViewSQL = `CREATE MATERIALIZED VIEW IF NOT EXISTS archive_1d
WITH (timescaledb.continuous, timescaledb.materialized_only = false)
AS
SELECT
    time_bucket('1 day', time) AS bucket,
    stationname,
    avg(barometer) AS barometer,
    avg(outtemp) AS outtemp,
    max(outtemp) AS max_outtemp,
    min(outtemp) AS min_outtemp,
    avg(outhumidity) AS outhumidity,
    circular_avg(winddir) AS winddir,
    avg(windspeed) AS windspeed,
    max(windgust) AS max_windgust,
    sum(rain) AS rain,
    sum(et) AS et
FROM archive
GROUP BY bucket, stationname;`

const addAggregationPolicy1hSQL = `SELECT add_continuous_aggregate_policy('archive_1h', INTERVAL '2 years', INTERVAL '1 hour', INTERVAL '1 hour', if_not_exists => true);`
const addAggregationPolicy1dSQL = `SELECT add_continuous_aggregate_policy('archive_1d', INTERVAL '10 years', INTERVAL '1 day', INTERVAL '1 day', if_not_exists => true);`
